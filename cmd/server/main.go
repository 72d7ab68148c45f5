package main

import (
	"os"

	"github.com/anooppandey17/virtual-teacher/internal/cli"
)

// @title           Virtual Teacher API
// @version         1.0
// @description     Conversation and tutoring API for learners, teachers, parents and admins.
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
