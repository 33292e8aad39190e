package main

import (
	"os"
)

func main() {
	if err := newRootCmd(wireApp).Execute(); err != nil {
		os.Exit(1)
	}
}
