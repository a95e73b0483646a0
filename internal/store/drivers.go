package store

// Audit database drivers selectable through audit.driver
import (
	_ "github.com/lib/pq"
	_ "github.com/snowflakedb/gosnowflake"
)
