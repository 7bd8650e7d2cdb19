package main

import "github.com/saadjs/nutrilog/cmd/nutrilog"

func main() {
	nutrilog.Execute()
}
