package browser

// trackingHookScript runs before any page script. It installs
// window.__trackingLog and wraps the Mixpanel, gtag and dataLayer entry
// points so every analytics call is recorded synchronously before the
// original function runs. SDKs that load late are caught by property
// setters, a 200ms poll and the DOMContentLoaded/load re-hooks.
const trackingHookScript = `
(function () {
	if (window.__trackingLog) return;
	window.__trackingLog = [];

	function safeArgs(args) {
		try {
			return JSON.parse(JSON.stringify(Array.prototype.slice.call(args)));
		} catch (e) {
			return Array.prototype.slice.call(args).map(function (a) { return String(a); });
		}
	}

	function record(platform, type, args) {
		window.__trackingLog.push({
			platform: platform,
			type: type,
			payload: safeArgs(args),
			ts: Date.now()
		});
	}

	function wrapFn(obj, name, platform, label) {
		if (!obj || typeof obj[name] !== 'function' || obj[name].__seoscanWrapped) return;
		var orig = obj[name];
		var wrapped = function () {
			record(platform, label, arguments);
			return orig.apply(this, arguments);
		};
		wrapped.__seoscanWrapped = true;
		obj[name] = wrapped;
	}

	var mixpanelMethods = ['track', 'init', 'identify', 'alias', 'register', 'reset',
		'time_event', 'track_links', 'track_forms'];
	var peopleMethods = ['set', 'set_once', 'increment', 'append', 'union', 'track_charge'];

	function hookMixpanel(mp) {
		if (!mp) return;
		mixpanelMethods.forEach(function (m) { wrapFn(mp, m, 'mixpanel', 'mixpanel.' + m); });
		if (mp.people) {
			peopleMethods.forEach(function (m) { wrapFn(mp.people, m, 'mixpanel', 'mixpanel.people.' + m); });
		}
		wrapFn(mp, '_track_dom', 'mixpanel', 'mixpanel._track_dom');
		if (Array.isArray(mp)) {
			wrapFn(mp, 'push', 'mixpanel', 'mixpanel.push');
		}
	}

	function hookDataLayer(dl) {
		if (!dl) return;
		wrapFn(dl, 'push', 'ga', 'dataLayer.push');
	}

	function hookAll() {
		hookMixpanel(window.mixpanel);
		wrapFn(window, 'gtag', 'ga', 'gtag');
		hookDataLayer(window.dataLayer);
	}

	function interceptAssignment(name, onSet) {
		try {
			var current = window[name];
			Object.defineProperty(window, name, {
				configurable: true,
				get: function () { return current; },
				set: function (value) {
					current = value;
					onSet(value);
				}
			});
			if (current) onSet(current);
		} catch (e) { /* property not configurable, the poll will catch it */ }
	}

	interceptAssignment('mixpanel', hookMixpanel);
	interceptAssignment('dataLayer', hookDataLayer);
	interceptAssignment('gtag', function () { wrapFn(window, 'gtag', 'ga', 'gtag'); });

	var attempts = 0;
	var poll = setInterval(function () {
		hookAll();
		attempts++;
		if (attempts >= 20) clearInterval(poll);
	}, 200);

	document.addEventListener('DOMContentLoaded', hookAll);
	window.addEventListener('load', hookAll);
	hookAll();
})();
`

// anchorEnumerationScript collects every <a href> on the page with its
// visibility, nearest heading and a stable selector path. Returns a JSON
// array.
const anchorEnumerationScript = `
(function () {
	function cssPath(el) {
		var parts = [];
		var node = el;
		while (node && node.nodeType === 1 && node.tagName.toLowerCase() !== 'body') {
			var part = node.tagName.toLowerCase();
			if (node.classList.length > 0) part += '.' + node.classList[0];
			var index = 1;
			var sibling = node;
			while ((sibling = sibling.previousElementSibling)) {
				if (sibling.tagName === node.tagName) index++;
			}
			part += ':nth-of-type(' + index + ')';
			parts.unshift(part);
			node = node.parentElement;
		}
		return 'body > ' + parts.join(' > ');
	}

	function nearestHeading(el) {
		var result = document.evaluate(
			'(preceding::h1|preceding::h2|preceding::h3|preceding::h4|preceding::h5|preceding::h6|' +
			'ancestor::h1|ancestor::h2|ancestor::h3|ancestor::h4|ancestor::h5|ancestor::h6)[last()]',
			el, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!result) return null;
		return { tag: result.tagName.toLowerCase(), text: (result.textContent || '').trim() };
	}

	function isVisible(el) {
		var rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		var style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	}

	function utmParams(href) {
		var params = {};
		try {
			var url = new URL(href, window.location.href);
			url.searchParams.forEach(function (value, key) {
				if (key.toLowerCase().indexOf('utm_') === 0) params[key.toLowerCase()] = value;
			});
		} catch (e) { /* unparseable href */ }
		return params;
	}

	var out = [];
	document.querySelectorAll('a[href]').forEach(function (a) {
		out.push({
			href: a.href,
			text: (a.innerText || '').trim(),
			selector: cssPath(a),
			nearestHeading: nearestHeading(a),
			visible: isVisible(a),
			utmParams: utmParams(a.getAttribute('href')),
			classes: a.className || '',
			dataAttrs: Array.prototype.filter.call(a.attributes, function (attr) {
				return attr.name.indexOf('data-') === 0;
			}).map(function (attr) { return attr.value; }).join(' ')
		});
	});
	return JSON.stringify(out);
})();
`

// clickAuditScript synthesizes clicks on up to 20 visible anchors and tags
// the tracking-log entries each click produced with the anchor's selector.
// preventDefault stops real navigation; SPA route changes are frozen by
// stubbing the history API for the duration of the audit. Resolves once
// every audited anchor has had its 300ms settle window.
const clickAuditScript = `
(async function () {
	function cssPath(el) {
		var parts = [];
		var node = el;
		while (node && node.nodeType === 1 && node.tagName.toLowerCase() !== 'body') {
			var part = node.tagName.toLowerCase();
			if (node.classList.length > 0) part += '.' + node.classList[0];
			var index = 1;
			var sibling = node;
			while ((sibling = sibling.previousElementSibling)) {
				if (sibling.tagName === node.tagName) index++;
			}
			part += ':nth-of-type(' + index + ')';
			parts.unshift(part);
			node = node.parentElement;
		}
		return 'body > ' + parts.join(' > ');
	}

	function isVisible(el) {
		var rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		var style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	}

	var origPushState = history.pushState;
	var origReplaceState = history.replaceState;
	history.pushState = function () {};
	history.replaceState = function () {};

	var anchors = Array.prototype.filter.call(
		document.querySelectorAll('a[href]'), isVisible).slice(0, 20);
	var audited = 0;

	try {
		for (var i = 0; i < anchors.length; i++) {
			var anchor = anchors[i];
			var selector = cssPath(anchor);
			var start = window.__trackingLog ? window.__trackingLog.length : 0;
			var handler = function (e) { e.preventDefault(); };
			anchor.addEventListener('click', handler);

			['mousedown', 'mouseup', 'click'].forEach(function (type) {
				anchor.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true, view: window }));
			});

			await new Promise(function (resolve) { setTimeout(resolve, 300); });
			anchor.removeEventListener('click', handler);

			if (window.__trackingLog) {
				for (var j = start; j < window.__trackingLog.length; j++) {
					if (!window.__trackingLog[j].element) {
						window.__trackingLog[j].element = selector;
					}
				}
			}
			audited++;
		}
	} finally {
		history.pushState = origPushState;
		history.replaceState = origReplaceState;
	}

	return audited;
})();
`

// readTrackingLogScript returns the accumulated tracking log as JSON
const readTrackingLogScript = `JSON.stringify(window.__trackingLog || [])`
