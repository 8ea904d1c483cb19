package main

import "stream-anomaly-detector/cmd"

func main() {
	cmd.Execute()
}
