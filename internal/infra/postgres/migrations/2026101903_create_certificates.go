package migrations

import _ "embed"

var (
	//go:embed sql/2026101903_create_certificates.up.sql
	createCertificatesUp string
	//go:embed sql/2026101903_create_certificates.down.sql
	createCertificatesDown string
)

func init() {
	Migrations.MustRegister(exec(createCertificatesUp), exec(createCertificatesDown))
}
