package ladderlib

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/sjson"
)

// ConfigGlobal must match the window property the engine reads.
const ConfigGlobal = "__UNBLOCKER_CONFIG__"

// BootstrapConfig builds the JSON object handed to the in-page engine.
func (l *Ladder) BootstrapConfig(target *url.URL) (string, error) {
	raw, err := sjson.Set("{}", "prefix", l.Config.HTMLPrefix)
	if err != nil {
		return "", err
	}
	if raw, err = sjson.Set(raw, "url", target.String()); err != nil {
		return "", err
	}
	if l.Config.EngineDebug {
		if raw, err = sjson.Set(raw, "debug", true); err != nil {
			return "", err
		}
	}
	// keep the payload from closing the script element early
	return strings.ReplaceAll(raw, "</", `<\/`), nil
}

func (l *Ladder) bootstrapHTML(target *url.URL) (string, error) {
	cfg, err := l.BootstrapConfig(target)
	if err != nil {
		return "", fmt.Errorf("error building engine config: %w", err)
	}

	assets := l.Config.AssetPath
	var sb strings.Builder
	fmt.Fprintf(&sb, `<script>window.%s=%s;</script>`, ConfigGlobal, cfg)
	fmt.Fprintf(&sb, `<script src="%swasm_exec.js"></script>`, assets)
	fmt.Fprintf(&sb, `<script>%s</script>`, fmt.Sprintf(loaderSource, assets+"unblocker.wasm", HeldScriptType, heldTypeAttr))
	return sb.String(), nil
}

// HeldScriptType is the inert type page scripts carry until the engine runs.
const HeldScriptType = "text/unblocker-held"

// heldTypeAttr keeps the type a held script had, if any.
const heldTypeAttr = "data-unblocker-type"

// loaderSource starts the engine, then replays the held page scripts in
// document order. go.run returns once main blocks, so the interceptors are
// in place by then. External scripts are replayed one at a time.
const loaderSource = `(function(){
var held=function(){
var list=document.querySelectorAll('script[type="%[2]s"]');
(function next(i){
for(;i<list.length;i++){
var old=list[i],s=document.createElement("script"),src=old.getAttribute("src");
for(var j=0;j<old.attributes.length;j++){var a=old.attributes[j];if(a.name!=="type"&&a.name!=="src"&&a.name!=="%[3]s")s.setAttribute(a.name,a.value);}
if(old.hasAttribute("%[3]s"))s.setAttribute("type",old.getAttribute("%[3]s"));
s.text=old.text;
if(src!==null){s.async=false;s.onload=s.onerror=function(){next(i+1);};s.src=src;old.parentNode.replaceChild(s,old);return;}
old.parentNode.replaceChild(s,old);
}
})(0);
};
try{
var go=new Go();
WebAssembly.instantiateStreaming(fetch(%[1]q),go.importObject).then(function(r){go.run(r.instance);held();},held);
}catch(e){held();}
})();`

// holdScripts makes every executable page script inert so none runs before
// the engine is installed.
func holdScripts(doc *goquery.Document) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, hasType := s.Attr("type")
		if !isScriptType(typ) {
			return
		}
		if hasType {
			s.SetAttr(heldTypeAttr, typ)
		}
		s.SetAttr("type", HeldScriptType)
	})
}

func isScriptType(typ string) bool {
	typ = strings.ToLower(strings.TrimSpace(typ))
	switch {
	case typ == "", typ == "module":
		return true
	case strings.Contains(typ, "javascript"), strings.Contains(typ, "ecmascript"), strings.Contains(typ, "jscript"):
		return true
	}
	return false
}

// RewriteHTML injects the engine bootstrap at the top of <head>, points
// <base> at the proxied location and applies the rule's injections. Page
// scripts are held until the engine has been installed.
func (l *Ladder) RewriteHTML(body []byte, target *url.URL, rule Rule) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing html: %w", err)
	}

	bootstrap, err := l.bootstrapHTML(target)
	if err != nil {
		return nil, err
	}

	applyInjections(doc, rule)
	holdScripts(doc)

	head := doc.Find("head").First()
	head.PrependHtml(bootstrap)

	base := doc.Find("base[href]").First()
	if base.Length() == 0 {
		head.PrependHtml(fmt.Sprintf(`<base href="%s">`, htmlAttr(l.Config.HTMLPrefix+target.String())))
	} else {
		href, _ := base.Attr("href")
		if ref, err := target.Parse(href); err == nil && !strings.HasPrefix(href, l.Config.HTMLPrefix) {
			base.SetAttr("href", l.Config.HTMLPrefix+ref.String())
		}
	}

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("error rendering html: %w", err)
	}
	return []byte(html), nil
}

func applyInjections(doc *goquery.Document, rule Rule) {
	for _, injection := range rule.Injections {
		if injection.Position == "" {
			continue
		}
		sel := doc.Find(injection.Position)
		if injection.Replace != "" {
			sel.ReplaceWithHtml(injection.Replace)
		}
		if injection.Append != "" {
			sel.AppendHtml(injection.Append)
		}
		if injection.Prepend != "" {
			sel.PrependHtml(injection.Prepend)
		}
	}
}

func htmlAttr(s string) string {
	return strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;").Replace(s)
}
