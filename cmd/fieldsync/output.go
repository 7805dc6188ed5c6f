package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/brickops/fieldsync/internal/models"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...any) {
	successColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printError(format string, args ...any) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...any) {
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...any) {
	infoColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("marshal output: %v", err)
		return
	}
	fmt.Println(string(data))
}

// bandColor maps a status band to its display color.
func bandColor(band models.StatusBand) *color.Color {
	switch band {
	case models.BandCritical:
		return errorColor
	case models.BandWarning:
		return warnColor
	case models.BandGood:
		return infoColor
	default:
		return successColor
	}
}

// scoreBand formats a score with its band, colored for terminals.
func scoreBand(score int) string {
	band := models.BandForScore(score)
	return bandColor(band).Sprintf("%d (%s)", score, band)
}
