package browser

// Probe helpers implement the fallback-locator-chain pattern: an ordered list
// of candidate selectors tried in priority order. Absence of every candidate
// is an ordinary outcome, never an error; per-candidate driver errors are
// swallowed so a flaky selector cannot abort a chain.

// FirstPresent returns the first element any selector in the chain resolves
// to, along with the winning selector. ok is false when nothing matched.
func FirstPresent(page Page, chain []string) (el Element, selector string, ok bool) {
	for _, sel := range chain {
		element, err := page.Query(sel)
		if err != nil || element == nil {
			continue
		}
		return element, sel, true
	}
	return nil, "", false
}

// FirstVisible returns the first *visible* element any selector in the chain
// resolves to. Selectors resolving only to hidden elements are skipped.
func FirstVisible(page Page, chain []string) (el Element, selector string, ok bool) {
	for _, sel := range chain {
		elements, err := page.QueryAll(sel)
		if err != nil {
			continue
		}
		for _, element := range elements {
			visible, err := element.IsVisible()
			if err != nil || !visible {
				continue
			}
			return element, sel, true
		}
	}
	return nil, "", false
}

// AnyPresent reports whether any selector in the chain resolves to an element.
func AnyPresent(page Page, chain []string) bool {
	_, _, ok := FirstPresent(page, chain)
	return ok
}
