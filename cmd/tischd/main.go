// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package main

import "github.com/tischnet/tischd/cmd/tischd/commands"

func main() {
	commands.Execute()
}
