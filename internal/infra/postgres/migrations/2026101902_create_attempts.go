package migrations

import _ "embed"

var (
	//go:embed sql/2026101902_create_attempts.up.sql
	createAttemptsUp string
	//go:embed sql/2026101902_create_attempts.down.sql
	createAttemptsDown string
)

func init() {
	Migrations.MustRegister(exec(createAttemptsUp), exec(createAttemptsDown))
}
