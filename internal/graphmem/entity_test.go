package graphmem

import "testing"

func TestHeuristicExtractorSkipsCommonSentenceStarters(t *testing.T) {
	entities := HeuristicExtractor{}.ExtractEntities("The Kubernetes scheduler placed Pods across Nodes")
	for _, e := range entities {
		if e == "The" {
			t.Fatal("expected common sentence starter to be filtered out")
		}
	}
}

func TestHeuristicExtractorDedupes(t *testing.T) {
	entities := HeuristicExtractor{}.ExtractEntities("Atlas met Atlas again near Atlas")
	count := 0
	for _, e := range entities {
		if e == "Atlas" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected Atlas to be deduplicated, got %d occurrences in %v", count, entities)
	}
}

func TestHeuristicExtractorCapturesMentionsAndTags(t *testing.T) {
	entities := HeuristicExtractor{}.ExtractEntities("ping @oncall about #incident-42")
	if !contains(entities, "@oncall") {
		t.Fatalf("expected @oncall to be extracted, got %v", entities)
	}
	if !contains(entities, "#incident-42") {
		t.Fatalf("expected #incident-42 to be extracted, got %v", entities)
	}
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
