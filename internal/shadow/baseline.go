package shadow

import "db_declarative_schema_syncer/internal/filter"

// BaselineStatements returns the platform objects every target database
// already carries: service roles, baseline grants on the public working
// schema, and the change-feed publication placeholder. Seeding these into
// the shadow keeps them out of every diff. Most will already exist on a
// reused cluster, which is why seeding tolerates duplicate-object errors.
func BaselineStatements() []string {
	return []string{
		`CREATE ROLE anon NOLOGIN NOINHERIT;`,
		`CREATE ROLE authenticated NOLOGIN NOINHERIT;`,
		`CREATE ROLE service_role NOLOGIN NOINHERIT BYPASSRLS;`,
		`CREATE ROLE platform_admin NOLOGIN CREATEDB CREATEROLE;`,

		`GRANT USAGE ON SCHEMA public TO anon, authenticated, service_role;`,
		`GRANT ALL ON SCHEMA public TO platform_admin;`,
		`ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO anon, authenticated, service_role;`,
		`ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO anon, authenticated, service_role;`,
		`ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT EXECUTE ON FUNCTIONS TO anon, authenticated, service_role;`,

		`CREATE PUBLICATION ` + filter.PlatformPublication + `;`,
	}
}
