package transcript

// ObjectLocator resolves an embedded entity's oid back to the document
// that owns it. Entries are created when the reconciler or a mutation
// registers a segment id and are never removed; once an oid is bound to a
// parent document that binding is permanent.
type ObjectLocator struct {
	Oid              string `bson:"_id" json:"oid"`
	EntityType       string `bson:"entity_type" json:"entityType"`
	ParentCollection string `bson:"parent_collection" json:"parentCollection"`
	ParentID         string `bson:"parent_id" json:"parentId"`
	ParentPrefix     string `bson:"parent_prefix" json:"parentPrefix"`
	Path             string `bson:"path" json:"path"`
}
