package main

import "github.com/aleksaelezovic/quadra/internal/cli"

func main() {
	cli.Execute()
}
