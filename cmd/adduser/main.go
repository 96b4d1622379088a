// cmd/adduser/main.go
// Creates or updates an operator account.
//
// Usage:
//
//	go run ./cmd/adduser -username steward -password testing -admin
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/padraicbc/votesettle/config"
	bundb "github.com/padraicbc/votesettle/db"
	"github.com/padraicbc/votesettle/handlers"
	"github.com/padraicbc/votesettle/models"
)

func main() {
	username := flag.String("username", "", "username (required)")
	password := flag.String("password", "", "plain-text password (required)")
	admin := flag.Bool("admin", false, "allow settlement and result endpoints")
	flag.Parse()

	hash, err := handlers.HashPasswordForUser(*username, *password)
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.Load()
	db := bundb.Setup(cfg)
	defer db.Close()

	if err := bundb.CreateTables(context.Background(), db); err != nil {
		log.Fatal("create tables:", err)
	}

	user := &models.User{Username: *username, Password: hash, IsAdmin: *admin}
	if err := bundb.NewStore(db).UpsertUser(context.Background(), user); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("user %q saved (admin=%t)\n", *username, *admin)
}
