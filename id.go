package enrich

import "github.com/xraph/enrich/id"

// ID is the primary identifier type for all enrich records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
