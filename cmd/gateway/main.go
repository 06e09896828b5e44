package main

import "github.com/fitlink/realtime-gateway/cmd/gateway/cmd"

func main() {
	cmd.Execute()
}
