package core

import (
	"github.com/google/uuid"

	"pkt.systems/cxconsole/schema"
)

func newRecordID() schema.RecordID {
	return schema.RecordID(uuid.NewString())
}
