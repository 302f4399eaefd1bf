package main

import "github.com/yorozuya-cybersecurity/upgrade-advisor/pkg/cli"

func main() {
	cli.Execute()
}
