// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/docbridge/docbridge/internal/util"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps an error's kind onto spec.md §6.4's three-way exit status:
// 1 for a caller mistake, 2 for an authorization/security failure, 3 for
// everything else.
func exitCode(err error) int {
	var ke *util.KindError
	if !errors.As(err, &ke) {
		return 3
	}
	switch ke.Kind {
	case util.KindInvalidConnectionProperties, util.KindUnsupportedFeature, util.KindQueryCompileError, util.KindSchemaNotFound:
		return 1
	case util.KindAuthentication, util.KindSchemaSecurity:
		return 2
	default:
		return 3
	}
}
