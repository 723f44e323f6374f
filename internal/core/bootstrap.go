package core

// IdentIdentEntid is the well-known entid of the :db/ident attribute
// itself. Every store bootstraps with this entid already bound, the same
// way mentat's test suite treats entid 10 as "a known-good value": a
// fixed point callers can rely on existing before they've transacted
// anything.
const IdentIdentEntid Entid = 1

// bootstrapDBIndex is the first entid NOT claimed by the bootstrap
// process; entids below it in :db.part/db are reserved for well-known
// attributes and idents (spec.md §3, §8: "10 is a bootstrapped entid").
const bootstrapDBIndex Entid = 11

// bootstrapDBEnd bounds the db partition, matching the user partition's
// starting point so :db.part/db and :db.part/user never overlap.
const bootstrapDBEnd Entid = USER0

// BootstrapSchema returns the Schema a freshly initialized store carries:
// just enough of the entid<->ident bijection for the transactor to
// recognize :db/ident assertions as installing new idents, rather than
// ordinary datoms.
func BootstrapSchema() *Schema {
	s := NewSchema()
	s.PutIdent(IdentIdentEntid, Keyword{Namespace: "db", Name: "ident"})
	s.PutAttribute(IdentIdentEntid, Attribute{ValueType: ValueTypeKeyword, Unique: true, Cardinality: CardinalityOne})
	return s
}

// BootstrapPartitions returns the partition map a freshly initialized
// store carries.
func BootstrapPartitions() PartitionMap {
	return BootstrapPartitionMap(bootstrapDBEnd, bootstrapDBIndex)
}
