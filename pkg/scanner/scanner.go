package scanner

import (
	"context"
	"fmt"
	"iter"
	"path"
	"time"

	"github.com/ethpandaops/archivoor/pkg/source"
	"github.com/sirupsen/logrus"
)

// TestDir is one campaign/test directory together with the artefacts
// found directly inside it.
type TestDir struct {
	CampaignName    string
	CampaignModTime time.Time
	Name            string
	Dir             string
	Path            string
	Location        string
	Artefacts       []ArtefactInfo
}

// Find returns the first artefact with the given role.
func (t TestDir) Find(role Role) (ArtefactInfo, bool) {
	for _, a := range t.Artefacts {
		if a.Role == role {
			return a, true
		}
	}

	return ArtefactInfo{}, false
}

// Scanner walks <root>/<campaign>/<test>/ two levels deep. Directories
// deeper than the test level and files at the root or campaign level are
// ignored; no state is kept between scans.
type Scanner struct {
	log    logrus.FieldLogger
	reader source.Reader
}

// New creates a Scanner over the given source.
func New(log logrus.FieldLogger, reader source.Reader) *Scanner {
	return &Scanner{
		log:    log.WithField("component", "scanner"),
		reader: reader,
	}
}

// Tests lazily yields every test directory in campaign then test name
// order. A failure to list a single campaign or test is yielded as an
// error alongside whatever is known about the directory, and the walk
// continues. A failure to list the root ends the sequence.
func (s *Scanner) Tests(ctx context.Context) iter.Seq2[TestDir, error] {
	return func(yield func(TestDir, error) bool) {
		campaigns, err := s.reader.ListCampaigns(ctx)
		if err != nil {
			yield(TestDir{}, fmt.Errorf("listing campaigns in %s: %w",
				s.reader.Root(), err))

			return
		}

		s.log.WithFields(logrus.Fields{
			"root":      s.reader.Root(),
			"campaigns": len(campaigns),
		}).Debug("Scanning root")

		for _, campaign := range campaigns {
			if ctx.Err() != nil {
				yield(TestDir{}, ctx.Err())

				return
			}

			tests, err := s.reader.ListTests(ctx, campaign)
			if err != nil {
				if !yield(TestDir{CampaignName: campaign.Name}, fmt.Errorf(
					"listing tests in campaign %s: %w", campaign.Name, err,
				)) {
					return
				}

				continue
			}

			for _, test := range tests {
				td, err := s.scanTest(ctx, campaign, test)
				if !yield(td, err) {
					return
				}
			}
		}
	}
}

// Scan lazily yields every tracked artefact. It is a flattened view of
// Tests.
func (s *Scanner) Scan(ctx context.Context) iter.Seq2[ArtefactInfo, error] {
	return func(yield func(ArtefactInfo, error) bool) {
		for td, err := range s.Tests(ctx) {
			if err != nil {
				if !yield(ArtefactInfo{}, err) {
					return
				}

				continue
			}

			for _, a := range td.Artefacts {
				if !yield(a, nil) {
					return
				}
			}
		}
	}
}

func (s *Scanner) scanTest(
	ctx context.Context, campaign, test source.Entry,
) (TestDir, error) {
	td := TestDir{
		CampaignName:    campaign.Name,
		CampaignModTime: campaign.ModTime,
		Name:            TestNameFromDir(test.Name),
		Dir:             test.Name,
		Path:            path.Join(campaign.Name, test.Name),
		Location:        test.Path,
	}

	files, err := s.reader.ListFiles(ctx, test)
	if err != nil {
		return td, fmt.Errorf("listing files in %s: %w", td.Path, err)
	}

	for _, f := range files {
		typ, role, ok := Classify(f.Name)
		if !ok {
			continue
		}

		td.Artefacts = append(td.Artefacts, ArtefactInfo{
			Path:         f.Path,
			Name:         f.Name,
			Size:         f.Size,
			ModTime:      f.ModTime,
			Type:         typ,
			Role:         role,
			CampaignName: td.CampaignName,
			TestName:     td.Name,
			TestDir:      td.Dir,
			TestPath:     td.Path,
		})
	}

	return td, nil
}
