package main

import "pomosync/backend/internal/cli"

func main() {
	cli.Execute()
}
