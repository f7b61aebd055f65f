// Package logx is flightbroker's structured logging facade over zerolog.
//
// Loggers are cheap values carrying fixed fields (usually Comp). They read
// the Service's current zerolog root on every event, so Service.Apply
// (config hot reload) changes level and sinks for every existing Logger.
// Console output is human-readable with a short caller; the file sink and
// format "json" write one JSON object per line.
package logx
