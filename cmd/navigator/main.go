// Command navigator drives a Thymio robot to a goal on an occupancy grid.
//
//	navigator run --config configs/config.yml
//	navigator simulate --start 2.5,2.5,0
//	navigator plan --from 1,1 --to 8,3
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
