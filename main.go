package main

import "github.com/ngocnhu100/bus-ticket-booking-system-sub006/cmd"

func main() {
	cmd.Execute()
}
