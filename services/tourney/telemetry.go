package tourney

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const library_name = "repeatbot.services.tourney"

var tracer = otel.Tracer(library_name)
var meter = otel.Meter(library_name)

var joinedCounter, _ = meter.Int64Counter("tourney.joined")
var rejectedCounter, _ = meter.Int64Counter("tourney.rejected")
var errorCounter, _ = meter.Int64Counter("tourney.errors")
var skippedCounter, _ = meter.Int64Counter("tourney.skipped")
var claimedCounter, _ = meter.Float64Counter("tourney.claimed", metric.WithDescription("prize amount claimed, by currency"))
