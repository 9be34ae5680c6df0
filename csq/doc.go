// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package csq reads FLIR .csq radiometric video files and converts each
// frame to temperatures in °C.
//
// A .csq file is a sequence of frames, each one starting with the 6 bytes
// "FFF\x00RT". Each frame embeds a raw thermal image, usually compressed as
// lossless JPEG, and the calibration tags needed to convert raw counts to
// temperatures. Extracting both is delegated to a MetadataExtractor and a
// RawImageDecoder; see packages exiftool and rawimage.
//
// References:
//
// Raw to temperature formula, as used by the Thermimage R package:
//   https://github.com/gtatters/Thermimage/blob/master/R/raw2temp.R
//
// ExifTool FLIR tags:
//   https://exiftool.org/TagNames/FLIR.html
//
// Old style JPEG in FLIR files:
//   https://github.com/haraldk/TwelveMonkeys/issues/67
package csq
