// elPrep: a high-performance tool for analyzing SAM/BAM files.
// Copyright (c) 2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package internal

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Invariant reports a violated internal invariant and terminates the
// process. Every call is stamped with a fresh incident id so that two
// reports of the same message in a log can still be told apart.
func Invariant(tag, format string, args ...interface{}) {
	log.Panicf("internal invariant violation [%v] incident=%v: %v", tag, uuid.New(), fmt.Sprintf(format, args...))
}
