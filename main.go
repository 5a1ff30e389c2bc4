package main

import "github.com/kebairia/budgetease/cmd"

func main() {
	cmd.Execute()
}
