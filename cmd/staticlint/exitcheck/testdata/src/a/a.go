package main

import "os"

func main() {
	defer cleanup()
	if len(os.Args) > 1 {
		os.Exit(2) // want `do not call os.Exit directly in main`
	}
	run(func() {
		os.Exit(3)
	})
}

func run(f func()) { f() }

func cleanup() {}

func helper() {
	os.Exit(1)
}
