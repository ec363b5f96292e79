package main

import (
	"fmt"
	"os"
	"strings"

	"plantkeeper/internal/api"
	"plantkeeper/internal/format"
	"plantkeeper/internal/imagestore"
	"plantkeeper/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeStructured(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writePlantList(plants []api.PlantResponse) error {
	if len(plants) == 0 {
		return writePlain("no plants\n")
	}
	for _, plant := range plants {
		if err := writePlain("%s\n", formatPlantLine(plant)); err != nil {
			return err
		}
	}
	return nil
}

func writePlantDetail(plant api.PlantResponse) error {
	lines := []string{
		fmt.Sprintf("id: %d", plant.ID),
		fmt.Sprintf("name: %s", plant.Name),
		fmt.Sprintf("last_watered: %s", formatWatered(plant)),
		fmt.Sprintf("image: %s", plant.ImagePath),
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatPlantLine(plant api.PlantResponse) string {
	return fmt.Sprintf("#%d %s (watered: %s)", plant.ID, plant.Name, formatWatered(plant))
}

func formatWatered(plant models.Plant) string {
	if !plant.Watered() {
		return "never"
	}
	return models.FormatWatered(*plant.LastWatered)
}

func writeSweepResult(result imagestore.SweepResult) error {
	verb := "would delete"
	if !result.DryRun {
		verb = "deleted"
	}
	for _, orphan := range result.Orphans {
		if err := writePlain("orphan: %s (%d bytes)\n", orphan.Name, orphan.SizeBytes); err != nil {
			return err
		}
	}
	for _, missing := range result.Missing {
		if err := writePlain("missing: %s\n", missing); err != nil {
			return err
		}
	}
	count, bytes := result.DeletedCount, result.ReclaimedBytes
	if result.DryRun {
		count, bytes = result.CandidateCount, 0
		for _, orphan := range result.Orphans {
			bytes += orphan.SizeBytes
		}
	}
	if err := writePlain("%s %d orphaned file(s), %d bytes\n", verb, count, bytes); err != nil {
		return err
	}
	if result.FailedCount > 0 {
		return fmt.Errorf("failed to delete %d orphaned file(s)", result.FailedCount)
	}
	return nil
}
