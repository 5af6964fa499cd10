package provider

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// BuildPrompt produces the composition instruction handed to providers. The
// wording asks for a seamless photorealistic composite that preserves each
// member's facial features, with or without a supplied background scene.
func BuildPrompt(groupName string, memberNames []string, backgroundName string) string {
	names := make([]string, 0, len(memberNames))
	for _, n := range memberNames {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		names = append(names, titleCaser.String(n))
	}
	scene := strings.TrimSpace(backgroundName)
	if scene == "" {
		scene = "a modern clean setting"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a realistic group photo by seamlessly composing these %d individual people into one scene.\n\n", len(names))
	fmt.Fprintf(&b, "Group: %q\n", strings.TrimSpace(groupName))
	fmt.Fprintf(&b, "Members: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Scene: %s\n\n", scene)
	b.WriteString(`Instructions:
- Seamlessly integrate each person into the scene
- Preserve each person's facial features and characteristics exactly
- Match lighting, shadows, and perspective across all subjects
- Create natural group dynamics with appropriate spacing and interaction
- Ensure consistent color grading across the composition
- Make it look like an authentic group photo taken in this location

Style: Photorealistic, natural lighting, professional group photo quality
Output: High-resolution composite image that looks authentically photographed`)
	return b.String()
}
