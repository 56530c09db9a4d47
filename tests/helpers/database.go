package helpers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	SQLDialect          = "postgres"
	SQLConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=disable"
	Host                = "0.0.0.0"
	User                = "postgres"
	Password            = "postgres"
	MasterDBName        = "MEDIADESK_DB"
	Port                = "5432"
)

var (
	ctx          = context.Background()
	postgresPort = nat.Port(Port + "/tcp")

	dbManager = newDatabaseManager(MasterDBName)

	unsafeDatabaseChars = regexp.MustCompile(`[^a-z0-9_]`)
)

// databaseManager is an internal test helper which facilitates
// the templating of a single 'master' database in a shared postgresql
// docker instance. This allows tests to use individual databases without
// needing to create multiple instances of docker. This manager will:
//   - automatically spawn the container,
//   - migrate the master database,
//   - mark the master database as a template, and,
//   - facilitate provisioning of new databases based off that master database.
type databaseManager struct {
	*sync.Mutex
	masterDatabaseName string
	pgContainer        testcontainers.Container
	connection         *sql.DB
}

func newDatabaseManager(databaseName string) *databaseManager {
	return &databaseManager{
		Mutex:              &sync.Mutex{},
		masterDatabaseName: databaseName,
	}
}

// NewTestDatabase provisions a new, fully migrated, database for the
// test and returns a connection to it. The connection is closed when
// the test completes. Tests using a database are skipped when running
// with -short, as a docker daemon is required.
func NewTestDatabase(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	name := testDatabaseName(t)
	dbManager.provisionDB(t, name)

	db, err := sqlx.Open(SQLDialect, fmt.Sprintf(SQLConnectionString, Host, User, Password, name, Port))
	if err != nil {
		t.Fatalf("failed to open connection to test database '%s': %s", name, err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func testDatabaseName(t *testing.T) string {
	name := unsafeDatabaseChars.ReplaceAllString(strings.ToLower(t.Name()), "_")
	if len(name) > 40 {
		name = name[:40]
	}

	return fmt.Sprintf("%s_%s", name, strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
}

func (manager *databaseManager) provisionDB(t *testing.T, databaseName string) {
	manager.Lock()
	defer manager.Unlock()

	if databaseName == MasterDBName {
		t.Logf("WARNING: ignoring request to provision database '%s' as this DB is the master database, and cannot be provisioned", databaseName)
		return
	}

	if manager.connection == nil {
		t.Log("Database provisioning request received but manager not started yet. Initializing database management...")
		manager.connect(t)
		manager.markMasterDB(t)
		t.Log("Database management initialised!")
	}

	_, err := manager.connection.Exec(fmt.Sprintf(`CREATE DATABASE "%s" TEMPLATE "%s"`, databaseName, manager.masterDatabaseName))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			if pqErr.Code == "42P04" {
				t.Logf("Database '%s' already provisioned. Reusing database", databaseName)
				return
			}
		}

		t.Fatalf("failed to create provision database '%s' based on template database '%s': (%T) %s", databaseName, manager.masterDatabaseName, err, err)
	}
}

func (manager *databaseManager) connect(t *testing.T) {
	if manager.connection != nil {
		t.Log("WARNING: ignoring request to connect database manager, connection already open")
		return
	}

	if manager.pgContainer == nil {
		manager.spawnPostgres(t)
	} else if !manager.pgContainer.IsRunning() {
		t.Fatalf("failed to connect database manager, container exists but not running")
	}

	dsn := fmt.Sprintf(SQLConnectionString, Host, User, Password, MasterDBName, Port)
	db, err := sql.Open(SQLDialect, dsn)
	if err != nil {
		t.Fatalf("failed to open postgres connection: %s", err)
	}

	const attempts = 3
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := db.Ping(); err == nil {
			break
		} else if attempt == attempts {
			t.Fatalf("all database connection attempts FAILED: %s", err)
		}

		t.Logf("DB connection attempt (%d/%d) failed... Retrying in 3s", attempt, attempts)
		time.Sleep(3 * time.Second)
	}

	t.Log("Database connection established!")
	manager.connection = db
}

// markMasterDB migrates the master database and marks it as a template. The
// migration connection is closed before marking, as postgres refuses to use
// a database with active connections as a template.
func (manager *databaseManager) markMasterDB(t *testing.T) {
	if manager.connection == nil {
		t.Fatalf("cannot mark master database as template: db connection not established")
		return
	}

	t.Log("Migrating master database...")
	if err := database.Migrate(manager.connection); err != nil {
		t.Fatalf("failed to migrate master database (%s): %s", manager.masterDatabaseName, err)
	}

	t.Log("Master DB migrated, marking master database as template...")
	if _, err := manager.connection.Exec(fmt.Sprintf(`ALTER DATABASE "%s" WITH is_template TRUE`, manager.masterDatabaseName)); err != nil {
		t.Fatalf("failed to mark master database (%s) as template: %s", manager.masterDatabaseName, err)
	}

	// Connections to a template block CREATE DATABASE ... TEMPLATE, so the
	// manager moves its connection to the maintenance database.
	_ = manager.connection.Close()
	db, err := sql.Open(SQLDialect, fmt.Sprintf(SQLConnectionString, Host, User, Password, "postgres", Port))
	if err != nil {
		t.Fatalf("failed to open maintenance connection: %s", err)
	}
	manager.connection = db
}

func (manager *databaseManager) spawnPostgres(t *testing.T) {
	if manager.pgContainer != nil && manager.pgContainer.IsRunning() {
		t.Log("WARNING: ignoring request to spawn PG container, container already running")
		return
	}

	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14.1-alpine"),
		postgres.WithDatabase(MasterDBName),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(15*time.Second),
			wait.ForListeningPort(postgresPort).WithStartupTimeout(15*time.Second)),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) { hostConfig.NetworkMode = "host" }),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
		return
	}

	manager.pgContainer = postgresC
}
