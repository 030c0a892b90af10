// Package monitor renders assembled frames for offline inspection: PNG
// plots for reports and an interactive HTML scatter for the browser.
package monitor
