package render

import (
	"encoding/json"
	"fmt"
)

// finalURLJS reports the document URL after redirects.
const finalURLJS = `() => location.href`

// scrollJS scrolls by step pixels every interval ms until the cumulative
// distance reaches the scrollable height, then resolves after grace ms.
func scrollJS(step, intervalMS, graceMS int) string {
	return fmt.Sprintf(`() => new Promise((resolve) => {
	let total = 0;
	const timer = setInterval(() => {
		window.scrollBy(0, %d);
		total += %d;
		const body = document.body;
		if (!body || total >= body.scrollHeight - window.innerHeight) {
			clearInterval(timer);
			setTimeout(resolve, %d);
		}
	}, %d);
})`, step, step, graceMS, intervalMS)
}

// lazyJS copies the first non-empty lazy attribute into src for every img
// that has no src, and returns how many images it touched.
func lazyJS(attrs []string) string {
	list, _ := json.Marshal(attrs)
	return fmt.Sprintf(`() => {
	const attrs = %s;
	let n = 0;
	document.querySelectorAll("img").forEach((img) => {
		if (img.getAttribute("src")) return;
		for (const a of attrs) {
			const v = img.getAttribute(a);
			if (v) {
				img.setAttribute("src", v);
				n++;
				break;
			}
		}
	});
	return String(n);
}`, list)
}
