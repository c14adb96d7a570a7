package main

import "estatecrm.org/cmd/crmapi/cmd"

func main() {
	cmd.Execute()
}
