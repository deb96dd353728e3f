// Package bitdb provides the in-memory query core of an embeddable document
// database: bitmap filter formulas evaluated over transactional indexes.
//
// Every collection keeps a bitmap of its primary keys and, per attribute, a
// bitmap for each value. Queries are formula trees (AND, OR, NOT, attribute
// scopes, deferred ranges) over those bitmaps. Writers change the indexes
// inside a transaction while readers keep seeing the last committed state.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := bitdb.New()
//	defer db.Close()
//
//	color := bitdb.AttributeKey{Name: "color"}
//	_ = db.Update(ctx, func(tx *bitdb.Tx) error {
//	    products, err := db.CreateCollection(tx, "products")
//	    if err != nil {
//	        return err
//	    }
//	    if err := products.Insert(tx, 1, 2, 3); err != nil {
//	        return err
//	    }
//	    return products.SetAttribute(tx, color, 2, "red")
//	})
//
//	products, _ := db.Collection(nil, "products")
//	res, _ := db.Query(ctx, bitdb.Query{
//	    Filter: products.AttributeEquals(nil, color, "red"),
//	    Limit:  10,
//	})
//	fmt.Println(res.Records) // [2]
//
// # Transactions
//
// A Tx is passed explicitly to every index operation. A nil Tx reads the
// committed state. Formulas built from a Tx see its uncommitted changes and
// are never cached.
//
// # Caching
//
// Expensive subtrees that recur across queries are cached together with the
// versions of the bitmaps they were computed from. A cached result is served
// only while none of those bitmaps has been committed to since. SaveCache and
// LoadCache persist cached results to a blob store (memory, local directory,
// S3 or MinIO).
//
// # Sorting
//
// Query.OrderBy takes sorters in priority order: attribute sorters from
// Collection.Sorter and block sorters from Collection.ReferenceSorter.
// Records no sorter places follow in ascending primary key order.
package bitdb
