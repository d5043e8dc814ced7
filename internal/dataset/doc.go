// Package dataset is the in-memory data collection that node graphs run
// against: samples with tags and free-form fields, immutable views built
// by chaining stages, aggregations over a view, named saved views and a
// Session holding the view currently shown to the user.
package dataset
