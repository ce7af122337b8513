package main

import "bkam-rates/cmd"

func main() {
	cmd.Execute()
}
