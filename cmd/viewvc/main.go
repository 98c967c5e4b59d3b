// Copyright © 2018 One Concern

package main

import (
	"github.com/viewvc/viewvc-sub000/cmd/viewvc/cmd"
)

func main() {
	cmd.Execute()
}
