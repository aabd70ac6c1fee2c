// Package migrations embeds the forward-only SQL migration ladder for the
// encrypted store and exposes it as a golang-migrate source driver.
package migrations

import (
	"embed"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var rawMigrations embed.FS

// Source returns a fresh golang-migrate source driver over the embedded ladder.
func Source() (source.Driver, error) {
	return iofs.New(rawMigrations, ".")
}
