package main

import "github.com/piggyclaim/piggyclaim/cmd"

func main() {
	cmd.Execute()
}
