package main

import "github.com/runeset/semidx/internal/cli"

func main() {
	cli.Execute()
}
