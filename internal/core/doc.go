// Package core provides the business logic for market price reports.
//
// # Data Flow
//
// A daily price sheet arrives as CSV text and moves through three stages:
//
//  1. [Parse] tokenizes the text and [Parser.ParseRows] turns the rows into a
//     [StructuredReport]: metadata, special notes, headers and items.
//  2. [Serialize] and [Deserialize] convert a report to and from the UTF-8
//     JSON blob the report store keeps in a [StoredRecord].
//  3. [Categories], [Filter] and [Summarize] answer display queries over a
//     loaded report. They are pure and never modify the report.
//
// # Sheet Layout
//
// Rows above the price table whose first cell is one of [NoteCategories]
// become special notes. The first row containing the cell "Item-name" is the
// header row; every later row with a non-blank Item-name becomes an item.
//
//	Vegetables,Prices up 10%
//	Fish,Tuna scarce this week
//	Item-name,Unit,Price,category
//	Carrot,1kg,120,Vegetables
//	Tuna,1kg,900,Fish
//
// # Error Handling
//
// Tokenizing failures are [*ParseError]; store exchanges fail with
// [*StoreError] classified by [StoreErrorKind]. [ErrNotFound] marks an empty
// store and is not a failure. [MapError] maps any of them to a
// [UserMessage] with a support code.
package core
