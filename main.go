package main

import "github.com/rand/memento/internal/cmd"

func main() {
	cmd.Execute()
}
