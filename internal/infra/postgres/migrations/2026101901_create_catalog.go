package migrations

import _ "embed"

var (
	//go:embed sql/2026101901_create_catalog.up.sql
	createCatalogUp string
	//go:embed sql/2026101901_create_catalog.down.sql
	createCatalogDown string
)

func init() {
	Migrations.MustRegister(exec(createCatalogUp), exec(createCatalogDown))
}
