package main

import "github.com/xueqianLu/payfi/cmd/payfi/cmd"

func main() {
	cmd.Execute()
}
