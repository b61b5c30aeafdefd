package cmd

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/krivanek/rollcall/internal/gallery"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll identities from directories of sample photos",
	Long: `Enroll identities in bulk from a directory tree. Each subdirectory
holds the sample photos for one person and is named either "<id>" or
"<id>__<Full Name>":

  samples/
    s1024__Alena Novakova/
      front.jpg
      left.jpg
      right.jpg
    s1025__Bohumil Dvorak/
      ...

Samples that fail detection or the quality gate are skipped; enrollment
fails for a person when fewer usable samples remain than the configured
minimum.

Examples:
  # Enroll everyone under ./samples
  rollcall enroll --dir ./samples

  # Use more parallel workers
  rollcall enroll --dir ./samples --concurrency 4`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory with one subdirectory per identity (required)")
	enrollCmd.Flags().Int("concurrency", 2, "Number of parallel workers")
	_ = enrollCmd.MarkFlagRequired("dir")
}

// enrollJob is one identity directory queued for enrollment.
type enrollJob struct {
	id      string
	name    string
	samples []string
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	ctx := context.Background()

	app, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	jobs, err := collectEnrollJobs(dir)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No identity directories found, nothing to do")
		return nil
	}
	fmt.Printf("Enrolling %d identities from %s\n\n", len(jobs), dir)

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("people"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	enroller := app.enroller()

	var successCount, errorCount, totalTemplates int
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(j enrollJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			samples, err := loadSampleImages(j.samples)
			if err != nil {
				log.Printf("enroll %s: %v", j.id, err)
				mu.Lock()
				errorCount++
				mu.Unlock()
				_ = bar.Add(1)
				return
			}

			rec, err := enroller.Enroll(ctx, j.id, gallery.Metadata{Name: j.name}, samples)
			if err != nil {
				log.Printf("enroll %s: %v", j.id, err)
				mu.Lock()
				errorCount++
				mu.Unlock()
				_ = bar.Add(1)
				return
			}

			mu.Lock()
			successCount++
			totalTemplates += rec.Meta.SampleCount
			mu.Unlock()
			_ = bar.Add(1)
		}(job)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nCompleted: %d enrolled, %d failed\n", successCount, errorCount)
	fmt.Printf("Templates stored: %d\n", totalTemplates)
	fmt.Printf("Identities in gallery: %d\n", app.gallery.Count())
	return nil
}

// collectEnrollJobs walks the top level of dir and turns every
// subdirectory with at least one image into an enrollment job.
func collectEnrollJobs(dir string) ([]enrollJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var jobs []enrollJob
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id, name := splitIdentityDir(entry.Name())
		samples, err := listSampleFiles(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			continue
		}

		jobs = append(jobs, enrollJob{id: id, name: name, samples: samples})
	}

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].id < jobs[k].id })
	return jobs, nil
}

// splitIdentityDir parses "<id>__<Full Name>"; without the separator the
// directory name serves as both.
func splitIdentityDir(dirName string) (id, name string) {
	if idx := strings.Index(dirName, "__"); idx > 0 {
		return dirName[:idx], strings.TrimSpace(dirName[idx+2:])
	}
	return dirName, dirName
}

func listSampleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadSampleImages(paths []string) ([]image.Image, error) {
	images := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		images = append(images, img)
	}
	return images, nil
}
