// Package testdb provides helpers for PostgreSQL integration tests.
//
// Tests run against the database named by DATABASE_URL (or
// MEDIAQ_TEST_DB_URL / MEDIAQ_DATABASE_URL) and are skipped when none is
// set. The embedded migrations are applied once per test binary, and each
// test runs inside a transaction that is rolled back when it finishes, so
// tests can run in parallel without cleaning up after themselves:
//
//	func TestSelect(t *testing.T) {
//	    t.Parallel()
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewPostgresJobStore(tx)
//	        ...
//	    })
//	}
package testdb
