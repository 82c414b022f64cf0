package main

import "feederconsole/app/cmd"

func main() {
	cmd.Execute()
}
